package main

import "github.com/ValentinKolb/dKeeper/cmd"

func main() {
	cmd.Execute()
}
