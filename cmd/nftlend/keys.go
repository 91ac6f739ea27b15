package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"nftlend/cmd/internal/passphrase"
	"nftlend/crypto"
)

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	keystorePath := fs.String("out", defaultKeystore, "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv, "new keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintf(out, "address: %s\nkeystore: %s\n", key.Address().Hex(), *keystorePath)
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Path to the keystore file")
	bech32 := fs.Bool("bech32", false, "Print the bech32 form instead of hex")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := crypto.KeystoreAddress(*keystorePath)
	if err != nil {
		return err
	}
	if *bech32 {
		fmt.Fprintln(out, crypto.EncodeAddress(crypto.AccountPrefix, addr))
		return nil
	}
	fmt.Fprintln(out, addr.Hex())
	return nil
}

func loadKey(keystorePath, passEnv string) (*crypto.PrivateKey, error) {
	pass, err := passphrase.NewSource(passEnv, "keystore").Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(keystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock keystore %s: %w", keystorePath, err)
	}
	return key, nil
}
