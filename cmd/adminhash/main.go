// Command adminhash prints a bcrypt hash for ADMIN_PASSWORD_HASH.
//
//	adminhash -cost 12 < password.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/utils"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()
	xlog.Configure(xlog.Config{Output: os.Stderr})
	logger := xlog.WithComponent("adminhash")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		logger.Fatal().Err(err).Msg("read password from stdin")
	}
	plain := strings.TrimRight(line, "\r\n")
	if plain == "" {
		logger.Fatal().Msg("empty password")
	}
	hash, err := utils.HashPassword(plain, *cost)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash password")
	}
	fmt.Println(hash)
}
