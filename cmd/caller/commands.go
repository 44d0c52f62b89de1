package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/callbroker/internal/app/orch"
	"github.com/dkeye/callbroker/internal/domain"
)

const actionTimeout = 15 * time.Second

const usage = `commands:
  call <peer> [video]   start a call
  answer                answer the ringing call
  reject [reason]       decline the ringing call
  hangup                end the call
  hold | resume
  mute | unmute
  video on|off
  camera <device-id>
  status
  quit`

// runCommand executes one input line and reports whether to quit.
func runCommand(ctx context.Context, coord *orch.Coordinator, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	var err error
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "help":
		fmt.Println(usage)
	case "call":
		if len(args) == 0 {
			fmt.Println("usage: call <peer> [video]")
			return false
		}
		peer, perr := domain.NewPeerID(args[0])
		if perr != nil {
			err = perr
			break
		}
		err = coord.Call(ctx, peer, len(args) > 1 && args[1] == "video")
	case "answer":
		err = coord.Answer(ctx)
	case "reject":
		err = coord.Reject(ctx, strings.Join(args, " "))
	case "hangup":
		err = coord.Hangup(ctx)
	case "hold":
		err = coord.Hold(ctx)
	case "resume":
		err = coord.Resume(ctx)
	case "mute":
		err = coord.ConfigureMicrophone(ctx, true)
	case "unmute":
		err = coord.ConfigureMicrophone(ctx, false)
	case "video":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			fmt.Println("usage: video on|off")
			return false
		}
		err = coord.ConfigureVideo(ctx, args[0] == "on")
	case "camera":
		if len(args) != 1 {
			fmt.Println("usage: camera <device-id>")
			return false
		}
		err = coord.SwitchCamera(ctx, args[0])
	case "status":
		b, merr := json.MarshalIndent(coord.Status(), "", "  ")
		if merr != nil {
			err = merr
			break
		}
		fmt.Println(string(b))
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q, try help\n", cmd)
	}
	if err != nil {
		fmt.Println("error:", err)
	}
	return false
}
