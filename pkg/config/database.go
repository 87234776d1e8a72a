package config

import (
	"fmt"
	"net/url"

	dbutils "github.com/tendant/db-utils/db"
)

// DatabaseConfig holds the PostgreSQL connection used by the postgres
// event log.
type DatabaseConfig struct {
	Host     string `env:"PLUSER_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"PLUSER_PG_PORT" env-default:"5432"`
	Database string `env:"PLUSER_PG_DATABASE" env-default:"pluser_db"`
	User     string `env:"PLUSER_PG_USER" env-default:"pluser"`
	Password string `env:"PLUSER_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"PLUSER_PG_SCHEMA" env-default:"public"`
	SSLMode  string `env:"PLUSER_PG_SSLMODE" env-default:"disable"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL.
func (d DatabaseConfig) ToDatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	q.Set("search_path", d.Schema+",public")
	u.RawQuery = q.Encode()
	return u.String()
}

// ToDbConfig converts the config to a db-utils DbConfig
func (d DatabaseConfig) ToDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

func (d DatabaseConfig) validate() ValidationErrors {
	return CollectErrors(
		RequireNonEmpty("PLUSER_PG_HOST", d.Host),
		RequireValidPort("PLUSER_PG_PORT", d.Port),
		RequireNonEmpty("PLUSER_PG_DATABASE", d.Database),
		RequireNonEmpty("PLUSER_PG_USER", d.User),
		RequireOneOf("PLUSER_PG_SSLMODE", d.SSLMode, []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}),
	)
}
