package app

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-binbot/pkg/protocol"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns the latest cycle update without its preview
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Last())
}

func (s *Server) handleGetPower(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"powered": s.gate.Powered()})
}

// handleSetPower flips the power switch from {"powered": bool}
func (s *Server) handleSetPower(c *fiber.Ctx) error {
	powered, err := protocol.ParsePowerCommand(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	changed := s.gate.Set(powered)
	return c.JSON(fiber.Map{
		"powered": s.gate.Powered(),
		"changed": changed,
	})
}
