package main

import (
	"log"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
