/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strconv"

	serial "github.com/allbin/serial-assistant"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// addPortFlags registers the line settings shared by every command that opens a session
func addPortFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("baud", "b", serial.DefaultBaudRate, "Baud rate")
	cmd.Flags().Int("data-bits", serial.DefaultDataBits, "Data bits: 5, 6, 7, 8")
	cmd.Flags().String("stop-bits", "1", "Stop bits: 1, 1.5, 2")
	cmd.Flags().StringP("parity", "p", "none", "Parity: none, even, odd, space, mark")
	cmd.Flags().StringP("flow-control", "f", "none", "Flow control: none, hardware, software")
	cmd.Flags().String("encoding", "utf-8", "Text encoding of sent and received text (utf-8, gbk, latin1, ...)")
	cmd.Flags().Bool("detect-disconnect", true, "Close the port when the device stops responding")
}

// bindFlags lets config file and SERIAL_* values fill flags the user did not set
func bindFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

func portConfigFromFlags(cmd *cobra.Command, name string) (serial.PortConfig, error) {
	if err := bindFlags(cmd); err != nil {
		return serial.PortConfig{}, err
	}

	stopBits, err := serial.ParseStopBits(viper.GetString("stop-bits"))
	if err != nil {
		return serial.PortConfig{}, err
	}
	parity, err := serial.ParseParity(viper.GetString("parity"))
	if err != nil {
		return serial.PortConfig{}, err
	}
	flow, err := serial.ParseFlowControl(viper.GetString("flow-control"))
	if err != nil {
		return serial.PortConfig{}, err
	}

	return serial.NewConfig(name,
		serial.WithBaudRate(viper.GetInt("baud")),
		serial.WithDataBits(viper.GetInt("data-bits")),
		serial.WithStopBits(stopBits),
		serial.WithParity(parity),
		serial.WithFlowControl(flow),
	)
}

func newSession(cmd *cobra.Command, logger zerolog.Logger) (*serial.Session, error) {
	if err := bindFlags(cmd); err != nil {
		return nil, err
	}

	opts := []serial.SessionOption{serial.WithLogger(logger)}
	if name := viper.GetString("encoding"); name != "" {
		enc, err := serial.LookupEncoding(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, serial.WithEncoding(enc))
	}
	if viper.GetBool("detect-disconnect") {
		opts = append(opts, serial.WithDisconnectDetection())
	}
	return serial.NewSession(opts...), nil
}

// resolvePortArg maps a list index ("0", "1", ...) to the device path shown
// by the list command. Anything that is not a number is returned unchanged.
func resolvePortArg(s *serial.Session, arg string) (string, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return arg, nil
	}

	s.ListPorts()
	name := s.ResolveName(index)
	if name == "" {
		return "", fmt.Errorf("no serial port at index %d (see \"serial-assistant list\")", index)
	}
	return name, nil
}

// openSession builds a session from flags, resolves arg and opens the port
func openSession(cmd *cobra.Command, arg string, logger zerolog.Logger) (*serial.Session, serial.PortConfig, error) {
	s, err := newSession(cmd, logger)
	if err != nil {
		return nil, serial.PortConfig{}, err
	}

	name, err := resolvePortArg(s, arg)
	if err != nil {
		s.Shutdown()
		return nil, serial.PortConfig{}, err
	}
	cfg, err := portConfigFromFlags(cmd, name)
	if err != nil {
		s.Shutdown()
		return nil, serial.PortConfig{}, err
	}
	return s, cfg, nil
}

// openRawPort resolves arg and opens it with the default line settings,
// for commands that only touch modem lines.
func openRawPort(arg string) (serial.Port, string, error) {
	s := serial.NewSession()
	defer s.Shutdown()

	name, err := resolvePortArg(s, arg)
	if err != nil {
		return nil, "", err
	}
	port, err := serial.Open(serial.DefaultConfig(name))
	if err != nil {
		return nil, name, err
	}
	return port, name, nil
}
