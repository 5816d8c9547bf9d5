package main

import (
	"log"

	"whisper-desk/internal/bootstrap"
)

func main() {
	app, err := bootstrap.New(bootstrap.DetectEnvironment())
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
