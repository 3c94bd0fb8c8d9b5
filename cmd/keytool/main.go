// Command keytool encrypts a base58 Solana keypair into the password-protected
// key file read by pumpbot (wallet.encrypted_key_path), or checks an existing
// file by decrypting it and printing the public key.
//
// The key and password are read from PUMPBOT_WALLET_PRIVATE_KEY and
// PUMPBOT_WALLET_KEY_PASSWORD when set, and from standard input otherwise.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alanyoungcy/pumpbot/internal/crypto"
)

func main() {
	out := flag.String("out", "wallet.key.json", "path of the encrypted key file")
	verify := flag.Bool("verify", false, "decrypt -out and print its public key")
	force := flag.Bool("force", false, "overwrite an existing key file")
	flag.Parse()

	in := bufio.NewReader(os.Stdin)
	var err error
	if *verify {
		err = runVerify(in, *out)
	} else {
		err = runEncrypt(in, *out, *force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "keytool: %v\n", err)
		os.Exit(1)
	}
}

func runEncrypt(in *bufio.Reader, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}
	}
	key, err := secret(in, "PUMPBOT_WALLET_PRIVATE_KEY", "base58 private key: ")
	if err != nil {
		return err
	}
	password, err := secret(in, "PUMPBOT_WALLET_KEY_PASSWORD", "password: ")
	if err != nil {
		return err
	}

	blob, err := crypto.EncryptKey(key, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	pk, err := crypto.ParseKey(key)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s for %s\n", path, pk.PublicKey())
	return nil
}

func runVerify(in *bufio.Reader, path string) error {
	password, err := secret(in, "PUMPBOT_WALLET_KEY_PASSWORD", "password: ")
	if err != nil {
		return err
	}
	key, err := crypto.LoadKey(crypto.KeyConfig{EncryptedKeyPath: path, KeyPassword: password})
	if err != nil {
		return err
	}
	fmt.Println(key.PublicKey())
	return nil
}

// secret returns env when set, otherwise the next line of in.
func secret(in *bufio.Reader, env, prompt string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", env, err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is empty", env)
	}
	return line, nil
}
