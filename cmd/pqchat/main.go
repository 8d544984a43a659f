// Cliente de terminal do pqchat. Rode 'pqchat init' para criar o perfil.
package main

import "pqchat-backend/internal/cli"

func main() {
	cli.Execute()
}
