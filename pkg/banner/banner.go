package banner

import (
	"fmt"

	"taskdeck/pkg/config"
)

const banner = `
████████╗ █████╗ ███████╗██╗  ██╗██████╗ ███████╗ ██████╗██╗  ██╗
╚══██╔══╝██╔══██╗██╔════╝██║ ██╔╝██╔══██╗██╔════╝██╔════╝██║ ██╔╝
   ██║   ███████║███████╗█████╔╝ ██║  ██║█████╗  ██║     █████╔╝
   ██║   ██╔══██║╚════██║██╔═██╗ ██║  ██║██╔══╝  ██║     ██╔═██╗
   ██║   ██║  ██║███████║██║  ██╗██████╔╝███████╗╚██████╗██║  ██╗
   ╚═╝   ╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚═════╝ ╚══════╝ ╚═════╝╚═╝  ╚═╝
`

// PrintWithEff prints the startup banner using the effective config.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config source: %s\n", src)
	if eff.Config != nil && eff.Config.Chat.APIKey == "" {
		fmt.Println("Chat:     disabled (no API key configured)")
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /users/register          - Create an account")
	fmt.Println("POST /users/login             - Exchange credentials for a token")
	fmt.Println("GET  /todos                   - List your tasks")
	fmt.Println("POST /todos                   - Add a task")
	fmt.Println("POST /chat/stream             - Stream an assistant reply (SSE)")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/users/login' -d '{\"identifier\":\"me\",\"password\":\"...\"}'\n", addr)
	fmt.Printf("curl -H 'Authorization: Bearer <token>' 'http://localhost%s/todos'\n", addr)
}
