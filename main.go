package main

import (
	"github.com/OliveiraNt/kmt/cmd"
	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	utils.InitLogger()
	config.InitI18n()

	cmd.Execute()
}
