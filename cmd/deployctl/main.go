package main

import "github.com/tradewatch/deployctl/internal/deployctl/cmd"

func main() {
	cmd.Execute()
}
