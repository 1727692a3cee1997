package config

import "os"

// Config holds the environment-level settings for the API process
type Config struct {
	Port string

	StripeSecretKey string
	SendgridAPIKey  string
	FromEmail       string
	TatumAPIURI     string
	TatumAPIKey     string

	KafkaBroker string

	AWSRegion string
	S3Bucket  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8000"),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		SendgridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		FromEmail:       getEnv("FROM_EMAIL", "noreply@cryptoperk.io"),
		TatumAPIURI:     getEnv("TATUM_API_URI", "https://api.tatum.io"),
		TatumAPIKey:     os.Getenv("TATUM_API_KEY"),
		KafkaBroker:     os.Getenv("KAFKA_BROKER"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
	}
}
