package config

type Storage struct {
	Type        string          `mapstructure:"type"` // sqlite or postgres
	SQLite      SQLiteStorage   `mapstructure:"sqlite"`
	Postgres    PostgresStorage `mapstructure:"postgres"`
	MaxOpenConn int             `mapstructure:"max_open_conn"`
}

type SQLiteStorage struct {
	Path string `mapstructure:"path"`
}

type PostgresStorage struct {
	DSN string `mapstructure:"dsn"`
}

// Documents configures where uploaded shipment documents are kept.
type Documents struct {
	Store   string         `mapstructure:"store"` // local or s3
	MaxSize int64          `mapstructure:"max_size"`
	Local   LocalDocuments `mapstructure:"local"`
	S3      S3Documents    `mapstructure:"s3"`
}

type LocalDocuments struct {
	Path string `mapstructure:"path"`
}

type S3Documents struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"` // Custom endpoint, e.g. MinIO
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}
