package main

import (
	"log"

	"github.com/Rox-Lvmaohua/qrsignature/internal/tools/signctl"
)

func main() {
	if err := signctl.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
