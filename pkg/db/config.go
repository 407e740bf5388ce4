package db

// Config carries connection settings for the supported dialects.
// Type selects the dialect: "postgres" for deployments, "sqlite" for
// local runs. Pool durations are in seconds.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
