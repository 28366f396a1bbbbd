package main

import "unveil/internal/app"

func main() {
	app.Run()
}
