// Package fcheck is a UDP heartbeat failure detector. A monitored node
// answers heartbeats with acks; a monitoring node declares failure after a
// configured number of consecutive heartbeats go unacknowledged within the
// estimated RTT.
package fcheck

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// HBeatMessage is sent by the monitoring side.
type HBeatMessage struct {
	EpochNonce uint64 // identifies this fcheck instance/epoch
	SeqNum     uint64 // unique per heartbeat in an epoch
}

// AckMessage echoes a heartbeat back.
type AckMessage struct {
	HBeatEpochNonce uint64
	HBeatSeqNum     uint64
}

// FailureDetected reports the failed node back to the library user.
type FailureDetected struct {
	UDPIpPort string // remote ip:port of the failed node
	ServerId  uint32
	Timestamp time.Time
}

// StartStruct configures Start. If HBeatRemoteIPHBeatRemotePort is empty
// only the ack responder runs (the monitored side); otherwise a monitor of
// that remote is started as well.
type StartStruct struct {
	AckLocalIPAckLocalPort       string
	EpochNonce                   uint64
	HBeatLocalIPHBeatLocalPort   string
	HBeatRemoteIPHBeatRemotePort string
	LostMsgThresh                uint8
	ServerId                     uint32
}

const initialRTT = 3 * time.Second

var (
	ackConn     *net.UDPConn
	monitorStop chan struct{}
)

// Start runs the responder and, when configured, a monitor of the remote.
// Returns the notification channel (nil in responder-only mode) and the
// local address acks are served on.
func Start(arg StartStruct) (<-chan FailureDetected, string, error) {
	ackAddr, err := startResponder(arg.AckLocalIPAckLocalPort)
	if err != nil {
		return nil, "", err
	}

	if arg.HBeatRemoteIPHBeatRemotePort == "" {
		return nil, ackAddr, nil
	}

	notifyCh := make(chan FailureDetected, 1)
	monitorStop = make(chan struct{})
	go monitor(arg, notifyCh, monitorStop)
	return notifyCh, ackAddr, nil
}

// Monitor watches one remote responder without starting a responder of its
// own. Each call is independent, so one node can watch many peers. The
// monitor goroutine exits once a failure is reported.
func Monitor(arg StartStruct) (<-chan FailureDetected, error) {
	if arg.HBeatRemoteIPHBeatRemotePort == "" {
		return nil, fmt.Errorf("fcheck: Monitor requires a remote address")
	}
	notifyCh := make(chan FailureDetected, 1)
	go monitor(arg, notifyCh, make(chan struct{}))
	return notifyCh, nil
}

// Stop tears down the responder and any monitor. Idempotent.
func Stop() {
	if ackConn != nil {
		ackConn.Close()
		ackConn = nil
	}
	if monitorStop != nil {
		close(monitorStop)
		monitorStop = nil
	}
}

func startResponder(localAddr string) (string, error) {
	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return "", fmt.Errorf("fcheck: resolve ack addr %v: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return "", fmt.Errorf("fcheck: listen %v: %w", localAddr, err)
	}
	ackConn = conn

	go func() {
		buf := make([]byte, 1024)
		for {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return // closed by Stop
			}

			var hbeat HBeatMessage
			if err := decode(buf[:n], &hbeat); err != nil {
				log.Debugf("fcheck: responder: dropping undecodable packet: %v", err)
				continue
			}

			ack := AckMessage{
				HBeatEpochNonce: hbeat.EpochNonce,
				HBeatSeqNum:     hbeat.SeqNum,
			}
			if payload, err := encode(ack); err == nil {
				conn.WriteToUDP(payload, raddr)
			}
		}
	}()

	return conn.LocalAddr().String(), nil
}

func monitor(arg StartStruct, notifyCh chan<- FailureDetected, stop <-chan struct{}) {
	laddr, err := net.ResolveUDPAddr("udp", arg.HBeatLocalIPHBeatLocalPort)
	if err != nil {
		log.Errorf("fcheck: monitor: resolve local addr: %v", err)
		return
	}
	raddr, err := net.ResolveUDPAddr("udp", arg.HBeatRemoteIPHBeatRemotePort)
	if err != nil {
		log.Errorf("fcheck: monitor: resolve remote addr: %v", err)
		return
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		log.Errorf("fcheck: monitor: dial: %v", err)
		return
	}
	defer conn.Close()

	log.Debugf("fcheck: monitoring %v for server %v", conn.RemoteAddr(), arg.ServerId)

	rtt := initialRTT
	seqNum := uint64(0)
	lost := uint8(0)
	sendTimes := make(map[uint64]time.Time)
	buf := make([]byte, 1024)

	for {
		select {
		case <-stop:
			return
		default:
		}

		sendTimes[seqNum] = time.Now()
		payload, err := encode(HBeatMessage{EpochNonce: arg.EpochNonce, SeqNum: seqNum})
		if err != nil {
			log.Errorf("fcheck: monitor: encode: %v", err)
			return
		}
		if _, err := conn.Write(payload); err != nil {
			log.Debugf("fcheck: monitor: write: %v", err)
		}

		conn.SetReadDeadline(time.Now().Add(rtt))
		acked := false
		for !acked {
			n, err := conn.Read(buf)
			if err != nil {
				break // deadline or closed
			}

			var ack AckMessage
			if err := decode(buf[:n], &ack); err != nil || ack.HBeatEpochNonce != arg.EpochNonce {
				continue
			}
			if sent, ok := sendTimes[ack.HBeatSeqNum]; ok {
				// re-estimate RTT from this ack's round trip
				rtt = (rtt + time.Since(sent)) / 2
				delete(sendTimes, ack.HBeatSeqNum)
				acked = true
			}
		}

		if acked {
			lost = 0
		} else {
			lost++
			if lost >= arg.LostMsgThresh {
				notifyCh <- FailureDetected{
					UDPIpPort: arg.HBeatRemoteIPHBeatRemotePort,
					ServerId:  arg.ServerId,
					Timestamp: time.Now(),
				}
				return
			}
		}
		seqNum++
	}
}

func encode(msg interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(payload []byte, msg interface{}) error {
	return gob.NewDecoder(bytes.NewBuffer(payload)).Decode(msg)
}
