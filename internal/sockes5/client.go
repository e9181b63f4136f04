package sockes5

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// SOCKS5Client 通过内核混合端口建立 SOCKS5 连接
type SOCKS5Client struct {
	ProxyAddr string // SOCKS5 代理地址，例如 127.0.0.1:7890
	Username  string // 认证用户名（可选）
	Password  string // 认证密码（可选）
}

// SOCKS5 协议常量
const (
	Version      = 0x05
	AuthNoAuth   = 0x00
	AuthUserPass = 0x02
	AuthNoAccept = 0xff

	CmdConnect = 0x01
	ATypIPv4   = 0x01
	ATypDomain = 0x03
	ATypIPv6   = 0x04

	ReplySuccess = 0x00
)

// Dial 连接代理并发起 CONNECT
func (c *SOCKS5Client) Dial(network, addr string) (net.Conn, error) {
	return c.DialContext(context.Background(), network, addr)
}

// DialContext 连接代理，完成协商、认证与 CONNECT 请求。
// 参数：
//   - ctx: 控制连接与握手的超时
//   - network: 仅支持 tcp
//   - addr: 目标地址 host:port
//
// 返回：已建立的隧道连接和错误（如果有）
func (c *SOCKS5Client) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("不支持的网络类型: %s", network)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.ProxyAddr)
	if err != nil {
		return nil, fmt.Errorf("连接代理服务器失败: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := c.handshake(conn, addr); err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

func (c *SOCKS5Client) handshake(conn net.Conn, addr string) error {
	method, err := c.negotiate(conn)
	if err != nil {
		return fmt.Errorf("SOCKS5 协商失败: %w", err)
	}
	if method == AuthUserPass {
		if err := c.authenticate(conn); err != nil {
			return fmt.Errorf("SOCKS5 认证失败: %w", err)
		}
	}
	if err := c.connect(conn, addr); err != nil {
		return fmt.Errorf("SOCKS5 请求失败: %w", err)
	}
	return nil
}

// negotiate VER NMETHODS METHODS -> VER METHOD
func (c *SOCKS5Client) negotiate(conn net.Conn) (byte, error) {
	methods := []byte{AuthNoAuth}
	if c.Username != "" || c.Password != "" {
		methods = append(methods, AuthUserPass)
	}
	req := append([]byte{Version, byte(len(methods))}, methods...)
	if _, err := conn.Write(req); err != nil {
		return 0, err
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return 0, err
	}
	if reply[0] != Version {
		return 0, fmt.Errorf("SOCKS 版本不匹配: %d", reply[0])
	}
	switch reply[1] {
	case AuthNoAuth:
		return AuthNoAuth, nil
	case AuthUserPass:
		if c.Username == "" && c.Password == "" {
			return 0, fmt.Errorf("代理要求用户名密码认证")
		}
		return AuthUserPass, nil
	default:
		return 0, fmt.Errorf("服务器选择了不支持的认证方法: %d", reply[1])
	}
}

// authenticate RFC 1929 用户名/密码认证
func (c *SOCKS5Client) authenticate(conn net.Conn) error {
	if len(c.Username) > 255 || len(c.Password) > 255 {
		return fmt.Errorf("用户名或密码过长")
	}
	req := []byte{0x01, byte(len(c.Username))}
	req = append(req, c.Username...)
	req = append(req, byte(len(c.Password)))
	req = append(req, c.Password...)
	if _, err := conn.Write(req); err != nil {
		return err
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return err
	}
	if reply[0] != 0x01 {
		return fmt.Errorf("认证响应版本错误: %d", reply[0])
	}
	if reply[1] != ReplySuccess {
		return fmt.Errorf("认证失败，状态码: %d", reply[1])
	}
	return nil
}

// connect 发送 CONNECT 请求并读完整个响应（含绑定地址）
func (c *SOCKS5Client) connect(conn net.Conn, addr string) error {
	req, err := encodeRequest(CmdConnect, addr)
	if err != nil {
		return err
	}
	if _, err := conn.Write(req); err != nil {
		return err
	}

	head := make([]byte, 4)
	if _, err := io.ReadFull(conn, head); err != nil {
		return err
	}
	if head[0] != Version {
		return fmt.Errorf("SOCKS 版本不匹配: %d", head[0])
	}
	if head[1] != ReplySuccess {
		return fmt.Errorf("代理请求被拒绝，状态码: %d", head[1])
	}

	var addrLen int
	switch head[3] {
	case ATypIPv4:
		addrLen = net.IPv4len
	case ATypIPv6:
		addrLen = net.IPv6len
	case ATypDomain:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return err
		}
		addrLen = int(lenBuf[0])
	default:
		return fmt.Errorf("不支持的地址类型: %d", head[3])
	}

	// BND.ADDR + BND.PORT
	if _, err := io.ReadFull(conn, make([]byte, addrLen+2)); err != nil {
		return err
	}
	return nil
}

// encodeRequest VER CMD RSV ATYP DST.ADDR DST.PORT
func encodeRequest(cmd byte, addr string) ([]byte, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("地址格式错误: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("端口格式错误: %s", portStr)
	}

	req := []byte{Version, cmd, 0x00}
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			req = append(req, ATypIPv4)
			req = append(req, ip4...)
		} else {
			req = append(req, ATypIPv6)
			req = append(req, ip.To16()...)
		}
	} else {
		if len(host) > 255 {
			return nil, fmt.Errorf("域名过长: %s", host)
		}
		req = append(req, ATypDomain, byte(len(host)))
		req = append(req, host...)
	}
	return binary.BigEndian.AppendUint16(req, uint16(port)), nil
}
