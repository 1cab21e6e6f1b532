package main

import (
	"fmt"
	"net"
	"os"

	"github.com/tphakala/fishnet-go/internal/conf"
)

const maxBatchSize = 10000

// Config holds the configuration for the export tool.
type Config struct {
	// Source database
	SQLitePath string

	// Target database
	MySQL conf.MySQLSettings

	// Export options
	BatchSize  int
	Clean      bool
	SkipVerify bool
	Verbose    bool
}

// Apply fills unset values from settings and validates the result.
func (c *Config) Apply(settings *conf.Settings) error {
	if c.SQLitePath == "" {
		c.SQLitePath = settings.Output.SQLite.Path
	}
	c.MySQL = settings.Output.MySQL
	if c.MySQL.Port == "" {
		c.MySQL.Port = "3306"
	}
	return c.Validate()
}

// Validate checks that both databases are described and the batch size is sane.
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("--sqlite-path is required (or set output.sqlite.path)")
	}
	if _, err := os.Stat(c.SQLitePath); os.IsNotExist(err) {
		return fmt.Errorf("SQLite database not found: %s", c.SQLitePath)
	}
	if c.MySQL.Host == "" || c.MySQL.Database == "" {
		return fmt.Errorf("output.mysql.host and output.mysql.database are required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be at least 1")
	}
	if c.BatchSize > maxBatchSize {
		return fmt.Errorf("batch-size too large (max %d)", maxBatchSize)
	}
	return nil
}

// SanitizedTarget describes the MySQL target without the password.
func (c *Config) SanitizedTarget() string {
	return fmt.Sprintf("%s:****@tcp(%s)/%s",
		c.MySQL.Username, net.JoinHostPort(c.MySQL.Host, c.MySQL.Port), c.MySQL.Database)
}
