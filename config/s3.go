package config

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	// Type is one of "memory", "s3", "minio".
	Type  string      `yaml:"type"`
	S3    S3Config    `yaml:"s3"`
	Minio MinioConfig `yaml:"minio"`
}

type S3Config struct {
	BucketName string `yaml:"bucket"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
}

func applyStorageEnv(s *StorageConfig) {
	setString(&s.Type, "STORAGE_TYPE")

	setString(&s.S3.BucketName, "AWS_S3_BUCKET_NAME")
	setString(&s.S3.Region, "AWS_REGION")
	setString(&s.S3.Endpoint, "AWS_ENDPOINT")
	setString(&s.S3.AccessKey, "AWS_ACCESS_KEY")
	setString(&s.S3.SecretKey, "AWS_SECRET_KEY")

	applyMinioEnv(&s.Minio)
}
