package modelstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

const stagePattern = "model-*.onnx"

// stage writes data to a fresh file in dir and returns its path.
func stage(dir string, data []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}

	outFile, err := os.CreateTemp(dir, stagePattern)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	path := outFile.Name()

	if err := writeFile(outFile, bytes.NewReader(data)); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return path, nil
}

func writeFile(outFile *os.File, src io.Reader) error {
	if _, err := io.Copy(outFile, src); err != nil {
		outFile.Close()
		return err
	}
	if err := outFile.Sync(); err != nil {
		outFile.Close()
		return err
	}
	return outFile.Close()
}
