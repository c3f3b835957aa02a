package main

import "github.com/0xF16/price-bets/cmd"

func main() {
	cmd.Execute()
}
