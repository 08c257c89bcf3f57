package config

import (
	"fmt"

	"github.com/metahub-io/metahub-server/internal/metahubsrv/config"
)

// MetahubDsn builds the connection string for the metahub database from the
// server configuration.
func MetahubDsn() string {
	c := config.Config().MetahubDB
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
