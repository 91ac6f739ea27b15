package main

import (
	"fmt"
	"io"
	"os"
)

const (
	defaultPassEnv   = "NFTLEND_KEY_PASS"
	defaultSecretEnv = "NFTLEND_AUTH_SECRET"
	defaultKeystore  = "nftlend.keystore"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(os.Args[2:], os.Stdout)
	case "address":
		err = runAddress(os.Args[2:], os.Stdout)
	case "sign-offer":
		err = runSignOffer(os.Args[2:], os.Stdout)
	case "sign-renegotiation":
		err = runSignRenegotiation(os.Args[2:], os.Stdout)
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: nftlend <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen               generate a key and write it to an encrypted keystore")
	fmt.Fprintln(w, "  address              print the address held by a keystore")
	fmt.Fprintln(w, "  sign-offer           sign a lender offer read from a JSON file")
	fmt.Fprintln(w, "  sign-renegotiation   sign revised loan terms read from a JSON file")
	fmt.Fprintln(w, "  token                issue a gateway bearer token")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'nftlend <command> -h' for the flags of a command.")
}
