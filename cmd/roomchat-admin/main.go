package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/rlaneuville/roomchat/auth"
	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/globals"
	"github.com/rlaneuville/roomchat/persistence"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// A very simple CLI tool for inspecting persisted roomchat state.

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	store, err := persistence.NewStore(globalConfig)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show persisted chat state",
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "List all known room names",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			names, err := store.RoomNames()
			if err != nil {
				globals.AppLogger.Error("could not get room names", "error", err)
				return
			}
			out, err := json.Marshal(names)
			if err != nil {
				globals.AppLogger.Error("could not marshal room names", "error", err)
				return
			}
			fmt.Println(string(out))
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room name]",
		Short: "Show the snapshot of a room",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			snap, err := store.LoadSnapshot(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get room", "room", args[0], "error", err)
				return
			}
			part, err := store.CurrentPart(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get history part", "room", args[0], "error", err)
				return
			}
			snap.HistoryPart = part
			out, err := json.Marshal(snap)
			if err != nil {
				globals.AppLogger.Error("could not marshal room", "error", err)
				return
			}
			fmt.Println(string(out))
		},
	}
	var cmdShowHistory = &cobra.Command{
		Use:   "history [room name] [part]",
		Short: "Show one history page of a room",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			part, err := strconv.Atoi(args[1])
			if err != nil {
				globals.AppLogger.Error("part must be a number", "part", args[1])
				return
			}
			messages, err := store.LoadPage(args[0], part)
			if err != nil {
				globals.AppLogger.Error("could not load history page", "error", err)
				return
			}
			out, err := json.Marshal(messages)
			if err != nil {
				globals.AppLogger.Error("could not marshal messages", "error", err)
				return
			}
			fmt.Println(string(out))
		},
	}
	var cmdHash = &cobra.Command{
		Use:   "hash [secret]",
		Short: "Hash a secret for the users file",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			hash, err := auth.HashSecret(args[0])
			if err != nil {
				globals.AppLogger.Error("could not hash secret", "error", err)
				return
			}
			fmt.Println(hash)
		},
	}

	var rootCmd = &cobra.Command{Use: "roomchat-admin"}
	rootCmd.AddCommand(cmdShow, cmdHash)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowHistory)
	rootCmd.Execute()
}
