package imagestore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/Marketly/internal/pkg/env"
)

// Config holds object storage settings for listing images.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string // Optional CDN or bucket URL used in returned links
	LocalDir        string // Used when S3 is disabled
	LocalURLPrefix  string
	Enabled         bool
}

// LoadConfig loads storage configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "ap-south-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicBaseURL:   strings.TrimRight(env.GetEnv("S3_PUBLIC_BASE_URL", ""), "/"),
		LocalDir:        env.GetEnv("UPLOAD_DIR", "uploads"),
		LocalURLPrefix:  "/uploads",
		Enabled:         env.GetEnvBool("S3_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 is enabled")
		}
	}

	return config, nil
}

// ObjectKey generates the object key for a listing image:
// listings/YYYY/MM/<id>.webp
func ObjectKey(id string, at time.Time) string {
	return fmt.Sprintf("listings/%04d/%02d/%s.webp", at.Year(), int(at.Month()), id)
}

// PublicURL returns the link handed to clients for key.
func (c *Config) PublicURL(key string) string {
	switch {
	case c.PublicBaseURL != "":
		return c.PublicBaseURL + "/" + key
	case c.EndpointURL != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.EndpointURL, "/"), c.BucketName, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.BucketName, c.Region, key)
	}
}
