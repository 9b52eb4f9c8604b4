// Copyright (C) 2025 The image-variant-worker Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "IMAGEFN"

// Config aggregates configuration for the application.
type Config struct {
	Variants   VariantsConfig   `mapstructure:"variants" yaml:"variants"`
	Conversion ConversionConfig `mapstructure:"conversion" yaml:"conversion"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub" yaml:"pubsub"`
}

type ConversionConfig struct {
	// Parallel runs the variants of one event concurrently.
	Parallel       bool          `mapstructure:"parallel" yaml:"parallel"`
	MaxConcurrency int           `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	JPEGQuality    int           `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
	PNGCompression string        `mapstructure:"png_compression" yaml:"png_compression"`
	ResampleFilter string        `mapstructure:"resample_filter" yaml:"resample_filter"`
	MaxSourceBytes int64         `mapstructure:"max_source_bytes" yaml:"max_source_bytes"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type StorageConfig struct {
	// Provider is one of "azure", "aws", "gcp" or "file".
	Provider string             `mapstructure:"provider" yaml:"provider"`
	Azure    AzureStorageConfig `mapstructure:"azure" yaml:"azure"`
	AWS      AWSStorageConfig   `mapstructure:"aws" yaml:"aws"`
	GCP      GCPStorageConfig   `mapstructure:"gcp" yaml:"gcp"`
	File     FileStorageConfig  `mapstructure:"file" yaml:"file"`
}

type AzureStorageConfig struct {
	ConnectionString string `mapstructure:"connection_string" yaml:"connection_string,omitempty"`
	Account          string `mapstructure:"account" yaml:"account,omitempty"`
	Endpoint         string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

type AWSStorageConfig struct {
	Region       string `mapstructure:"region" yaml:"region,omitempty"`
	Role         string `mapstructure:"role" yaml:"role,omitempty"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	InsecureTLS  bool   `mapstructure:"insecure_tls" yaml:"insecure_tls"`
}

type GCPStorageConfig struct {
	ImpersonateServiceAccount string `mapstructure:"impersonate_service_account" yaml:"impersonate_service_account,omitempty"`
}

type FileStorageConfig struct {
	BasePath string `mapstructure:"base_path" yaml:"base_path,omitempty"`
}

type PubSubConfig struct {
	HTTP  HTTPConfig       `mapstructure:"http" yaml:"http"`
	SQS   SQSConfig        `mapstructure:"sqs" yaml:"sqs"`
	GCP   GCPPubSubConfig  `mapstructure:"gcp" yaml:"gcp"`
	Azure AzureQueueConfig `mapstructure:"azure" yaml:"azure"`
	Dedup DedupConfig      `mapstructure:"dedup" yaml:"dedup"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// DrainTimeout bounds how long accepted notifications keep converting
	// after shutdown starts; whatever is still queued is then canceled.
	DrainTimeout time.Duration `mapstructure:"drain_timeout" yaml:"drain_timeout"`
}

type SQSConfig struct {
	QueueURL       string `mapstructure:"queue_url" yaml:"queue_url,omitempty"`
	Region         string `mapstructure:"region" yaml:"region,omitempty"`
	RoleARN        string `mapstructure:"role_arn" yaml:"role_arn,omitempty"`
	MaxConcurrency int    `mapstructure:"max_concurrency" yaml:"max_concurrency"`
}

type GCPPubSubConfig struct {
	ProjectID       string `mapstructure:"project_id" yaml:"project_id,omitempty"`
	SubscriptionID  string `mapstructure:"subscription_id" yaml:"subscription_id,omitempty"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
}

type AzureQueueConfig struct {
	Account          string `mapstructure:"account" yaml:"account,omitempty"`
	QueueName        string `mapstructure:"queue_name" yaml:"queue_name,omitempty"`
	Endpoint         string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	ConnectionString string `mapstructure:"connection_string" yaml:"connection_string,omitempty"`
	// BatchSize is how many messages one poll dequeues (1-32).
	BatchSize        int    `mapstructure:"batch_size" yaml:"batch_size"`
}

type DedupConfig struct {
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Capacity uint64        `mapstructure:"capacity" yaml:"capacity"`
}

// legacyEnv lists unprefixed environment variables honoured for a key when
// its IMAGEFN_ variable is unset.
var legacyEnv = map[string][]string{
	"storage.azure.connection_string": {"AzureWebJobsStorage"},
	"pubsub.azure.connection_string":  {"AzureWebJobsStorage"},
	"pubsub.azure.account":            {"AZURE_STORAGE_ACCOUNT"},
	"pubsub.azure.queue_name":         {"AZURE_QUEUE_NAME"},
	"pubsub.sqs.queue_url":            {"SQS_QUEUE_URL"},
	"pubsub.sqs.region":               {"SQS_REGION", "AWS_REGION"},
	"pubsub.sqs.role_arn":             {"SQS_ROLE_ARN"},
	"pubsub.gcp.project_id":           {"GCP_PROJECT_ID"},
	"pubsub.gcp.subscription_id":      {"GCP_SUBSCRIPTION_ID"},
	"pubsub.gcp.credentials_file":     {"GOOGLE_APPLICATION_CREDENTIALS"},
	"storage.aws.region":              {"AWS_REGION"},
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Variants: VariantsConfig{
			Names: append([]string(nil), DefaultVariantNames...),
		},
		Conversion: ConversionConfig{
			MaxConcurrency: 4,
			JPEGQuality:    75,
			PNGCompression: "default",
			ResampleFilter: "lanczos",
			MaxSourceBytes: 64 << 20,
			Timeout:        5 * time.Minute,
		},
		Storage: StorageConfig{
			Provider: "azure",
		},
		PubSub: PubSubConfig{
			HTTP: HTTPConfig{
				Addr:         ":8080",
				MaxBodyBytes: 1 << 20,
				DrainTimeout: 30 * time.Second,
			},
			SQS: SQSConfig{
				MaxConcurrency: 10,
			},
			Azure: AzureQueueConfig{
				BatchSize: 8,
			},
			Dedup: DedupConfig{
				TTL:      time.Hour,
				Capacity: 100_000,
			},
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "IMAGEFN" and the dot character
// in keys is replaced by an underscore. For example, "storage.provider"
// becomes "IMAGEFN_STORAGE_PROVIDER".
func Load() (*Config, error) {
	return load(viper.New())
}

// LoadFile is Load with an explicit configuration file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	explicit := v.ConfigFileUsed() != ""
	if !explicit {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Variants.Names = normalizeNames(cfg.Variants.Names)
	cfg.Variants.Definitions = loadVariants(v, cfg.Variants.Names)
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		bindKey(v, strings.Join(key, "."))
	}
}

func bindKey(v *viper.Viper, key string) {
	envs := append([]string{envName(key)}, legacyEnv[key]...)
	_ = v.BindEnv(append([]string{key}, envs...)...)
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
