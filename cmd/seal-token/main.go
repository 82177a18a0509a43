// seal-token prints the enc: form of an upstream token for TOKEN_CR_24 or
// TOKEN_HIST, sealed with TOKEN_ENC_KEY_B64.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"rotationsync/internal/secrets"
)

func main() {
	_ = godotenv.Load()

	key := strings.TrimSpace(os.Getenv("TOKEN_ENC_KEY_B64"))
	if key == "" {
		log.Fatal("missing env TOKEN_ENC_KEY_B64")
	}
	c, err := secrets.NewCipher(key)
	if err != nil {
		log.Fatalf("cipher: %v", err)
	}

	token := ""
	if len(os.Args) > 1 {
		token = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("read token: %v", err)
		}
		token = line
	}
	token = strings.TrimSpace(token)
	if token == "" {
		log.Fatal("usage: seal-token <token>  (or pipe the token on stdin)")
	}

	sealed, err := secrets.SealToken(c, token)
	if err != nil {
		log.Fatalf("seal: %v", err)
	}
	fmt.Println(sealed)
}
