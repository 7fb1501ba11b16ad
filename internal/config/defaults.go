package config

var defaults = map[string]any{
	"secret":    "",
	"log_level": "info",
	"log_file":  "",
	"listen":    ":8080",

	"nonce_store": "memory",
	"redis_url":   "localhost:6379",

	"allowed_networks": "",

	"rbac.policy_file": "",
	"rbac.admins":      []string{},

	"user_auth_ttl":  8,  // days
	"magic_link_ttl": 24, // hours
	"support_url":    DEFAULT_SUPPORT_URL,
	"base_url":       "http://localhost:8080",

	"email.host":     "",
	"email.port":     587,
	"email.username": "",
	"email.password": "",
	"email.from":     "noreply@example.com",
	"email.tls":      "opportunistic",

	"storage.type":          "sqlite",
	"storage.sqlite.path":   "./data/storage.db",
	"storage.postgres.dsn":  "",
	"storage.max_open_conn": 10,

	"documents.store":         "local",
	"documents.max_size":      10 << 20,
	"documents.local.path":    "./data/documents",
	"documents.s3.bucket":     "",
	"documents.s3.region":     "us-east-1",
	"documents.s3.endpoint":   "",
	"documents.s3.access_key": "",
	"documents.s3.secret_key": "",
	"documents.s3.path_style": true,

	"tms.url":            "",
	"tms.api_key":        "",
	"tms.timeout":        30,
	"tms.webhook_secret": "",
	"tms.concurrency":    4,
	"tms.sync_schedule":  "",
}

func Defaults() map[string]any {
	values := make(map[string]any)
	for k, v := range defaults {
		values[k] = v
	}
	return values
}
