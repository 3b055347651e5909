package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// EnvFileEnv names the dotenv file to load before flags are parsed
	EnvFileEnv = "ACKBOT_ENV_FILE"

	DefaultEnvFile = ".env"
)

// LoadEnvFile loads variables from a dotenv file into the process environment.
// Variables already set are kept. A missing default file is not an error; a
// missing file named through ACKBOT_ENV_FILE is.
func LoadEnvFile() (string, error) {
	path, explicit := os.LookupEnv(EnvFileEnv)
	if !explicit || path == "" {
		path = DefaultEnvFile
		explicit = false
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", goerr.Wrap(err, "failed to load env file", goerr.V(ConfigPathKey, path))
	}

	return path, nil
}
