package export

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLConfig returns a driver config for a TCP server.
func MySQLConfig(user, password, addr, dbName string) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.DBName = dbName
	return cfg
}

// NewMySQL opens a MySQL backed SQL exporter.
func NewMySQL(cfg *mysql.Config) (*SQL, error) {
	db, err := sql.Open(DriverMySQL, cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open MySQL DB %q: %s", cfg.Addr, err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	return &SQL{
		DB:     db,
		Driver: DriverMySQL,
	}, nil
}
