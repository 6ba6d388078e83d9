package main

import "github.com/solid/oidc-auth-manager/cmd"

func main() {
	cmd.Execute()
}
