// internal/app/system/limits/limits.go
package limits

// Request body size limits. CSV roster uploads carry their own cap in
// csvutil, next to the parser that enforces it.
const (
	// MaxSettingsFormSize is the maximum size for IVR settings form
	// submissions, excluding the logo file.
	MaxSettingsFormSize = 1 << 20 // 1 MB

	// MaxLogoUploadSize is the maximum accepted logo image size.
	MaxLogoUploadSize = 5 << 20 // 5 MB
)
