package invoice

import (
	"os"
	"strconv"
	"time"
)

// Config holds environment-driven settings for validation, printing and
// the PDF archive.
type Config struct {
	MaxLines        int
	MaxDescription  int
	PDFEngine       string
	PDFChromiumPath string
	PDFTimeout      time.Duration
	PDFTimeZone     string
	S3Endpoint      string
	S3Bucket        string
	S3Region        string
	SignURLTTL      time.Duration
}

// PDF engines.
const (
	EngineChromium = "chromium"
	EngineFPDF     = "fpdf"
)

func LoadConfig() Config {
	return Config{
		MaxLines:        getInt("MAX_INVOICE_LINES", 200),
		MaxDescription:  getInt("MAX_DESCRIPTION_LEN", 500),
		PDFEngine:       getenv("PDF_ENGINE", EngineFPDF),
		PDFChromiumPath: getenv("PDF_CHROMIUM_PATH", ""),
		PDFTimeout:      getDuration("PDF_TIMEOUT", 15*time.Second),
		PDFTimeZone:     getenv("PDF_TIMEZONE", "Asia/Kathmandu"),
		S3Endpoint:      getenv("S3_ENDPOINT", ""),
		S3Bucket:        getenv("S3_BUCKET", ""),
		S3Region:        getenv("S3_REGION", "ap-south-1"),
		SignURLTTL:      getDuration("SIGN_URL_TTL", 10*time.Minute),
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
