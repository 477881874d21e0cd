package main

import (
	"log"
	"net/http"
	"os"

	"github.com/dpatel76/SynapseDTE2-sub001/internal/config"
	"github.com/dpatel76/SynapseDTE2-sub001/internal/server"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	handler, err := server.NewHandlerWithOptions(server.HandlerOptions{Config: &cfg})
	if err != nil {
		log.Fatal(err)
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = cfg.ListenAddr
	}

	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}
