package main

import (
	"log"

	"unipass/cmd"
	_ "unipass/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
