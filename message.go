package main

const (
	StatusHealthy = "healthy"

	HeaderRequestID = "X-Request-ID"

	CORSAllowHeaders = "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token,X-Amz-User-Agent"
	CORSAllowMethods = "POST,GET,OPTIONS"

	MsgBodyTooLarge     = "request body too large"
	MsgInvalidBase64    = "image is not valid base64"
	MsgUnsupportedField = "multipart request needs an 'image' or 'file' field"
)
