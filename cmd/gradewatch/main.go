package main

import (
	"gradewatch/cmd/gradewatch/commands"
	"gradewatch/internal/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
