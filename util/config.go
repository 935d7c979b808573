package util

import (
	"encoding/json"
	"fmt"
	"net"
	"net/rpc"
	"os"
)

func ReadJSONConfig(filename string, config interface{}) error {
	configData, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(configData, config)
}

func WriteJSONConfig(filename string, config interface{}) error {
	configData, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, configData, 0644)
}

func CheckErr(err error, errfmsg string, fargs ...interface{}) {
	if err != nil {
		fmt.Fprintf(os.Stderr, errfmsg+"\n", fargs...)
		os.Exit(1)
	}
}

// IPEmptyPortOnly strips the port off an ip:port address so the kernel can
// pick a free local port when dialing.
func IPEmptyPortOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return host + ":"
}

func DialRPC(remoteAddr string) (*rpc.Client, error) {
	return rpc.Dial("tcp", remoteAddr)
}

func DialTCPCustom(localAddr string, remoteAddr string) (*net.TCPConn, error) {
	var laddr *net.TCPAddr
	var err error

	if localAddr != "" {
		laddr, err = net.ResolveTCPAddr("tcp", localAddr)
		if err != nil {
			return nil, fmt.Errorf("could not resolve local address %v: %w", localAddr, err)
		}
	}

	raddr, err := net.ResolveTCPAddr("tcp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("could not resolve remote address %v: %w", remoteAddr, err)
	}

	return net.DialTCP("tcp", laddr, raddr)
}
