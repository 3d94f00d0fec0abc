package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/matheus3301/huddle/internal/config"
	"github.com/matheus3301/huddle/internal/lock"
	"github.com/matheus3301/huddle/internal/profile"
	"github.com/spf13/cobra"
)

var (
	initName      string
	initPeer      string
	initTransport string
	initDefault   bool
)

func init() {
	initCmd.Flags().StringVar(&initName, "name", "", "display name of the local user")
	initCmd.Flags().StringVar(&initPeer, "peer-handle", "", "call-routing handle announced with presence")
	initCmd.Flags().StringVar(&initTransport, "url", "", "event stream WebSocket url")
	initCmd.Flags().BoolVar(&initDefault, "default", false, "make this the default profile")
	profilesCmd.AddCommand(profilesListCmd)
	rootCmd.AddCommand(profilesCmd, initCmd)
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage local profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles on this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := profile.List()
		if err != nil {
			return err
		}
		type entry struct {
			Name    string `json:"name"`
			Path    string `json:"path"`
			UserID  string `json:"userId"`
			Running bool   `json:"running"`
		}
		entries := make([]entry, 0, len(names))
		for _, name := range names {
			e := entry{Name: name, Path: profile.Dir(name), Running: daemonRunning(name)}
			if p, err := config.LoadProfile(profile.SettingsPath(name)); err == nil {
				e.UserID = p.User.ID
			}
			entries = append(entries, e)
		}
		if jsonFlag {
			outputJSON(entries)
			return nil
		}
		if len(entries) == 0 {
			fmt.Println("No profiles found. Create one with: huddlectl init <user-id>")
			return nil
		}
		for _, e := range entries {
			running := "stopped"
			if e.Running {
				running = "running"
			}
			fmt.Printf("%-20s %-20s %s (%s)\n", e.Name, valueOrDefault(e.UserID, "(no user)"), e.Path, running)
		}
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init <user-id>",
	Short: "Create or update the profile's settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := profileName()
		if err != nil {
			return err
		}
		if err := profile.EnsureDir(name); err != nil {
			return err
		}
		path := profile.SettingsPath(name)
		p, err := config.LoadProfile(path)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
		if p.User.PeerHandle == p.User.ID {
			p.User.PeerHandle = args[0]
		}
		p.User.ID = args[0]
		if initName != "" {
			p.User.Name = initName
		}
		if initPeer != "" {
			p.User.PeerHandle = initPeer
		}
		if initTransport != "" {
			p.Transport.URL = initTransport
		}
		if err := config.SaveProfile(path, p); err != nil {
			return fmt.Errorf("cannot write %s: %w", path, err)
		}
		if initDefault {
			if err := config.Save(profile.ConfigPath(), &config.Config{DefaultProfile: name}); err != nil {
				return err
			}
		}
		fmt.Printf("Profile %q ready at %s\n", name, path)
		return nil
	},
}

// daemonRunning probes the profile lock without holding it.
func daemonRunning(name string) bool {
	l, err := lock.Acquire(profile.Dir(name), "")
	if err != nil {
		var held *lock.LockHeldError
		return errors.As(err, &held)
	}
	_ = l.Release()
	return false
}

func readAttachment(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read attachment: %w", err)
	}
	return data, nil
}
