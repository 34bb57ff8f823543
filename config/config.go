package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tutortoise/image-classification-service/classification"
	"github.com/Tutortoise/image-classification-service/modelstore"

	"github.com/spf13/viper"
)

const (
	ProfileDenseNet201 = "densenet201"
	ProfileVGG16       = "vgg16"
)

type Configs struct {
	ApplicationName     string `mapstructure:"app_name"`
	ApplicationEnv      string `mapstructure:"app_env"`
	ApplicationLogLevel string `mapstructure:"app_log_level"`
	ApplicationHost     string `mapstructure:"app_host"`
	ApplicationPort     int    `mapstructure:"app_port"`
	Debug               bool   `mapstructure:"debug"`

	// deployment profile
	Profile     string `mapstructure:"profile"`
	ClassLabels string `mapstructure:"class_labels"`
	InputHeight int    `mapstructure:"input_height"`
	InputWidth  int    `mapstructure:"input_width"`
	TopK        int    `mapstructure:"top_k"`

	// model source
	IsOffline               bool   `mapstructure:"is_offline"`
	ModelSource             string `mapstructure:"model_source"`
	ModelPath               string `mapstructure:"model_path"`
	ModelBucket             string `mapstructure:"model_bucket"`
	ModelKey                string `mapstructure:"model_key"`
	ModelS3Region           string `mapstructure:"model_s3_region"`
	ModelS3Endpoint         string `mapstructure:"model_s3_endpoint"`
	ModelS3AccessKeyID      string `mapstructure:"model_s3_access_key_id"`
	ModelS3SecretAccessKey  string `mapstructure:"model_s3_secret_access_key"`
	ModelGCSCredentialsFile string `mapstructure:"model_gcs_credentials_file"`
	ModelFetchTimeoutMs     int    `mapstructure:"model_fetch_timeout_ms"`
	ModelScratchDir         string `mapstructure:"model_scratch_dir"`
	ModelInputName          string `mapstructure:"model_input_name"`
	ModelOutputName         string `mapstructure:"model_output_name"`
	ModelPreload            bool   `mapstructure:"model_preload"`

	// onnxruntime
	OrtLibraryPath     string `mapstructure:"ort_library_path"`
	OrtSessionPoolSize int    `mapstructure:"ort_session_pool_size"`
	OrtIntraOpThreads  int    `mapstructure:"ort_intra_op_threads"`

	// http
	HTTPReadTimeoutSec  int    `mapstructure:"http_read_timeout_sec"`
	HTTPWriteTimeoutSec int    `mapstructure:"http_write_timeout_sec"`
	MaxBodyBytes        int64  `mapstructure:"max_body_bytes"`
	CORSAllowOrigin     string `mapstructure:"cors_allow_origin"`
}

// profile is one consistent combination of model, input size and K.
type profile struct {
	labels    []string
	height    int
	width     int
	topK      int
	localPath string
	remoteKey string
}

var profiles = map[string]profile{
	ProfileDenseNet201: {
		labels:    classification.CIFAR10Labels,
		height:    224,
		width:     224,
		topK:      3,
		localPath: "models/TL_DN201_M4.onnx",
		remoteKey: "TL_DN201_M4.onnx",
	},
	ProfileVGG16: {
		labels:    classification.CIFAR10Labels,
		height:    32,
		width:     32,
		topK:      5,
		localPath: "models/vgg16_model.onnx",
		remoteKey: "vgg16_model.onnx",
	},
}

var envBindings = map[string]string{
	"app_name":                   "APP_NAME",
	"app_env":                    "APP_ENV",
	"app_log_level":              "APP_LOG_LEVEL",
	"app_host":                   "APP_HOST",
	"app_port":                   "APP_PORT",
	"debug":                      "DEBUG",
	"profile":                    "PROFILE",
	"class_labels":               "CLASS_LABELS",
	"input_height":               "INPUT_HEIGHT",
	"input_width":                "INPUT_WIDTH",
	"top_k":                      "TOP_K",
	"is_offline":                 "IS_OFFLINE",
	"model_source":               "MODEL_SOURCE",
	"model_path":                 "MODEL_PATH",
	"model_bucket":               "MODEL_BUCKET",
	"model_key":                  "MODEL_KEY",
	"model_s3_region":            "MODEL_S3_REGION",
	"model_s3_endpoint":          "MODEL_S3_ENDPOINT",
	"model_s3_access_key_id":     "MODEL_S3_ACCESS_KEY_ID",
	"model_s3_secret_access_key": "MODEL_S3_SECRET_ACCESS_KEY",
	"model_gcs_credentials_file": "MODEL_GCS_CREDENTIALS_FILE",
	"model_fetch_timeout_ms":     "MODEL_FETCH_TIMEOUT_MS",
	"model_scratch_dir":          "MODEL_SCRATCH_DIR",
	"model_input_name":           "MODEL_INPUT_NAME",
	"model_output_name":          "MODEL_OUTPUT_NAME",
	"model_preload":              "MODEL_PRELOAD",
	"ort_library_path":           "ORT_LIBRARY_PATH",
	"ort_session_pool_size":      "ORT_SESSION_POOL_SIZE",
	"ort_intra_op_threads":       "ORT_INTRA_OP_THREADS",
	"http_read_timeout_sec":      "HTTP_READ_TIMEOUT_SEC",
	"http_write_timeout_sec":     "HTTP_WRITE_TIMEOUT_SEC",
	"max_body_bytes":             "MAX_BODY_BYTES",
	"cors_allow_origin":          "CORS_ALLOW_ORIGIN",
}

// Load reads configuration from the environment, on top of the optional
// env-format file named by CONFIG_FILE, and resolves the deployment profile.
func Load() (*Configs, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("env")
	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return nil, err
	}
	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Configs{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.applyProfile(v); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "image-classification-service")
	v.SetDefault("app_env", "local")
	v.SetDefault("app_log_level", "INFO")
	v.SetDefault("app_host", "0.0.0.0")
	v.SetDefault("app_port", 8080)
	v.SetDefault("profile", ProfileDenseNet201)
	v.SetDefault("model_fetch_timeout_ms", 60000)
	v.SetDefault("model_s3_region", "eu-central-1")
	v.SetDefault("model_bucket", "project-image-classification-models")
	v.SetDefault("model_input_name", "")
	v.SetDefault("model_output_name", "")
	v.SetDefault("ort_session_pool_size", 4)
	v.SetDefault("http_read_timeout_sec", 60)
	v.SetDefault("http_write_timeout_sec", 60)
	v.SetDefault("max_body_bytes", 10<<20)
	v.SetDefault("cors_allow_origin", "*")
}

// applyProfile fills every profile field the environment did not set.
func (c *Configs) applyProfile(v *viper.Viper) error {
	p, ok := profiles[c.Profile]
	if !ok {
		return fmt.Errorf("unknown profile %q", c.Profile)
	}

	if !v.IsSet("class_labels") {
		c.ClassLabels = strings.Join(p.labels, ",")
	}
	if !v.IsSet("input_height") {
		c.InputHeight = p.height
	}
	if !v.IsSet("input_width") {
		c.InputWidth = p.width
	}
	if !v.IsSet("top_k") {
		c.TopK = p.topK
	}
	if !v.IsSet("model_source") {
		c.ModelSource = modelstore.KindS3
		if c.IsOffline {
			c.ModelSource = modelstore.KindLocal
		}
	}
	if !v.IsSet("model_path") {
		c.ModelPath = p.localPath
	}
	if !v.IsSet("model_key") {
		c.ModelKey = p.remoteKey
	}
	return nil
}

func (c *Configs) Validate() error {
	var errs []error

	labels := c.Labels()
	if len(labels) == 0 {
		errs = append(errs, errors.New("class labels cannot be empty"))
	}
	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		if label == "" {
			errs = append(errs, errors.New("class labels cannot contain an empty name"))
			continue
		}
		if seen[label] {
			errs = append(errs, fmt.Errorf("duplicate class label %q", label))
		}
		seen[label] = true
	}

	if c.InputHeight <= 0 || c.InputWidth <= 0 {
		errs = append(errs, fmt.Errorf("input size %dx%d must be positive", c.InputHeight, c.InputWidth))
	}
	if c.TopK < 0 || c.TopK > len(labels) {
		errs = append(errs, fmt.Errorf("top_k %d must be between 0 and %d", c.TopK, len(labels)))
	}

	switch c.ModelSource {
	case modelstore.KindLocal:
		if c.ModelPath == "" {
			errs = append(errs, errors.New("MODEL_PATH is required for local model source"))
		}
	case modelstore.KindS3, modelstore.KindGCS:
		if c.ModelBucket == "" || c.ModelKey == "" {
			errs = append(errs, fmt.Errorf("MODEL_BUCKET and MODEL_KEY are required for %s model source", c.ModelSource))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown model source %q", c.ModelSource))
	}

	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	return errors.Join(errs...)
}

// Labels returns the class labels in model output order.
func (c *Configs) Labels() []string {
	if strings.TrimSpace(c.ClassLabels) == "" {
		return nil
	}
	parts := strings.Split(c.ClassLabels, ",")
	labels := make([]string, len(parts))
	for i, part := range parts {
		labels[i] = strings.TrimSpace(part)
	}
	return labels
}

func (c *Configs) PipelineSettings() classification.Settings {
	return classification.Settings{
		Labels: c.Labels(),
		Height: c.InputHeight,
		Width:  c.InputWidth,
		TopK:   c.TopK,
	}
}

func (c *Configs) SourceOptions() modelstore.Options {
	return modelstore.Options{
		Kind:   c.ModelSource,
		Path:   c.ModelPath,
		Bucket: c.ModelBucket,
		Key:    c.ModelKey,
		S3: modelstore.S3Config{
			AccessKeyID:     c.ModelS3AccessKeyID,
			SecretAccessKey: c.ModelS3SecretAccessKey,
			Region:          c.ModelS3Region,
			Endpoint:        c.ModelS3Endpoint,
		},
		GCSCredentialsFile: c.ModelGCSCredentialsFile,
	}
}

func (c *Configs) FetchTimeout() time.Duration {
	return time.Duration(c.ModelFetchTimeoutMs) * time.Millisecond
}

func (c *Configs) Address() string {
	return fmt.Sprintf("%s:%d", c.ApplicationHost, c.ApplicationPort)
}
