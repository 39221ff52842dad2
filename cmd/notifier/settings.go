package main

type Settings struct {
	Port           int      `env:"PORT,default=8000"`
	JWTSecret      string   `env:"JWT_SECRET,required=true"`
	APIKeys        []string `env:"API_KEYS"`
	BasePath       string   `env:"BASE_PATH,default=/notifications"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`
	SendBuffer     int      `env:"SEND_BUFFER,default=16"`
	LogEncoding    string   `env:"LOG_ENCODING,default=json"`
}
