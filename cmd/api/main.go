package main

import (
	"flag"
	"log"

	"github.com/pepe57/OpenGateLLM/internal/config"
	"github.com/pepe57/OpenGateLLM/pkg/gateway"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the gateway configuration file")
	flag.Parse()

	config.LoadEnvFiles([]string{".env.local", ".env.development", ".env"})
	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := gateway.New(cfg).Run(); err != nil {
		log.Fatal(err)
	}
}
