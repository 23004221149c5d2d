package main

//go:generate swag init -g cmd/lifesync/docs.go -o docs

// @title           lifesync API
// @version         0.1.0
// @description     Connector sync runs, cursors, logs, credentials and schedule switches.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
