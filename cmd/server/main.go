package main

import "loophr/internal/app/server"

func main() {
	server.Run()
}
