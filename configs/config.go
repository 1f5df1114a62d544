package configs

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                     string
	MongoURI                 string
	DBName                   string
	JWTSecret                string
	TokenTTLHours            int
	ReconcileIntervalSeconds int
}

func LoadConfig() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var tokenTTLHours, reconcileInterval int

	fmt.Sscanf(os.Getenv("TOKEN_TTL_HOURS"), "%d", &tokenTTLHours)
	fmt.Sscanf(os.Getenv("RECONCILE_INTERVAL_SECONDS"), "%d", &reconcileInterval)

	if reconcileInterval <= 0 {
		reconcileInterval = 60
	}

	return Config{
		Port:                     os.Getenv("PORT"),
		MongoURI:                 os.Getenv("MONGO_URI"),
		DBName:                   os.Getenv("DB_NAME"),
		JWTSecret:                os.Getenv("JWT_SECRET"),
		TokenTTLHours:            tokenTTLHours,
		ReconcileIntervalSeconds: reconcileInterval,
	}
}
