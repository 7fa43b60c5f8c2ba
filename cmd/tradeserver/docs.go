package main

//go:generate swag init -g cmd/tradeserver/docs.go -o docs -d ../..

// @title           Tradeflow API
// @version         0.1.0
// @description     Trade stage workflow: signed operations, documents, offers and notifications.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
