package main

//go:generate swag init -g cmd/agent/main.go -o docs

// @title           IBRL Agent API
// @version         0.1.0
// @description     Proposal engine for a SOL/USDC wallet: intents, automations and approvals.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
