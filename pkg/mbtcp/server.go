package mbtcp

import (
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Handler answers register reads for the emulated device. Returning a
// *ModbusError produces an exception frame; any other error produces
// a ServerDeviceFailure exception. Handlers are called concurrently
// from every connection.
type Handler interface {
	ReadHoldingRegisters(unitID uint8, addr, qty uint16) ([]uint16, error)
	ReadInputRegisters(unitID uint8, addr, qty uint16) ([]uint16, error)
}

// ServerConfig carries the server knobs. Zero values get defaults.
type ServerConfig struct {
	// ReadTimeout bounds the wait for the next request frame. A peer
	// that stalls mid-frame is disconnected when it expires.
	ReadTimeout time.Duration
	// WriteTimeout bounds each response write.
	WriteTimeout time.Duration
}

// Server is a Modbus-TCP server restricted to register reads. Every
// other function code is refused with an IllegalFunction exception so
// probing clients get a well-formed answer instead of a dropped socket.
type Server struct {
	handler Handler
	cfg     ServerConfig
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup
}

func NewServer(handler Handler, cfg ServerConfig, logger *zap.Logger) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "mbtcp_server")),
		conns:   make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds addr and serves until Close. A bind failure is
// returned immediately; accept errors after that are logged and retried.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections on the listener, one goroutine each.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Info("emulated meter listening", zap.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			s.logger.Error("accept error", zap.Error(err))
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(30 * time.Second)
			tcpConn.SetNoDelay(true)
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close stops the listener and drops all live connections.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("emulated meter stopped")
	return err
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in connection handler",
				zap.String("remote", remote),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
		}
		s.wg.Done()
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	s.logger.Debug("connection accepted", zap.String("remote", remote))

	for {
		if s.closed.Load() {
			return
		}
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		frame, err := ReadFrame(conn)
		if err != nil {
			if err != io.EOF && !s.closed.Load() {
				if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
					s.logger.Debug("read error", zap.String("remote", remote), zap.Error(err))
				}
			}
			return
		}

		response := s.processRequest(frame)

		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if _, err := conn.Write(response.Encode()); err != nil {
			s.logger.Debug("write error", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

func (s *Server) processRequest(req *Frame) *Frame {
	resp := &Frame{
		Header: MBAPHeader{
			TransactionID: req.Header.TransactionID,
			ProtocolID:    ProtocolID,
			UnitID:        req.Header.UnitID,
		},
	}

	if len(req.PDU) < 1 {
		resp.PDU = BuildExceptionPDU(0, ExceptionIllegalFunction)
		return resp
	}

	fc := FunctionCode(req.PDU[0])
	s.logger.Debug("request",
		zap.Uint16("tx_id", req.Header.TransactionID),
		zap.Uint8("unit_id", req.Header.UnitID),
		zap.String("func", fc.String()))

	switch fc {
	case FuncReadHoldingRegisters:
		resp.PDU = s.readRegisters(fc, req.Header.UnitID, req.PDU, s.handler.ReadHoldingRegisters)
	case FuncReadInputRegisters:
		resp.PDU = s.readRegisters(fc, req.Header.UnitID, req.PDU, s.handler.ReadInputRegisters)
	default:
		// Writes included. This meter never accepts writes.
		resp.PDU = BuildExceptionPDU(fc, ExceptionIllegalFunction)
	}
	return resp
}

func (s *Server) readRegisters(fc FunctionCode, unitID uint8, pdu []byte,
	read func(uint8, uint16, uint16) ([]uint16, error)) []byte {

	addr, qty, err := ParseReadRequestPDU(pdu)
	if err != nil {
		return BuildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	if qty < 1 || qty > MaxReadQuantity {
		return BuildExceptionPDU(fc, ExceptionIllegalDataValue)
	}
	if uint32(addr)+uint32(qty) > 65536 {
		return BuildExceptionPDU(fc, ExceptionIllegalDataAddress)
	}

	values, err := read(unitID, addr, qty)
	if err != nil {
		if modbusErr, ok := err.(*ModbusError); ok {
			return BuildExceptionPDU(fc, modbusErr.Exception)
		}
		s.logger.Error("handler error", zap.String("func", fc.String()), zap.Error(err))
		return BuildExceptionPDU(fc, ExceptionServerDeviceFailure)
	}
	if uint16(len(values)) != qty {
		return BuildExceptionPDU(fc, ExceptionServerDeviceFailure)
	}
	return BuildRegistersResponsePDU(fc, values)
}
