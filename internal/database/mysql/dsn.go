package mysql

import (
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/sphinxql/internal/database"
)

// buildDSN constructs the driver DSN for one search node.
func buildDSN(cfg *database.Config, host string, port int) string {
	mc := gomysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Timeout = cfg.ConnectTimeout
	mc.ReadTimeout = cfg.ReadTimeout
	mc.WriteTimeout = cfg.WriteTimeout

	// One request may carry several statements separated by ';'.
	mc.MultiStatements = true
	// searchd has no server-side prepare; never let the driver try.
	mc.InterpolateParams = false

	return mc.FormatDSN()
}
