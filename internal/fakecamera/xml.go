package fakecamera

// genicamXML is the feature description for the in-process fake
// device, grounded on original_source/src/arvfakecamera.h's register
// map ("To keep in sync with arv-fake-camera.xml"). It covers just
// enough of spec §8's scenarios S1/S2/S6: plain register read/write
// (Width/Height), selector-driven address indirection (TriggerMode
// shifted by TriggerSelector), and an enumeration feeding get_payload's
// bits-per-pixel lookup (PixelFormat).
const genicamXML = `<?xml version="1.0" encoding="UTF-8"?>
<RegisterDescription ModelName="FakeCamera" VendorName="Aravis-Go" SchemaMajorVersion="1" SchemaMinorVersion="1">
  <Category Name="Root">
    <pFeature>DeviceVendorName</pFeature>
    <pFeature>Width</pFeature>
    <pFeature>Height</pFeature>
    <pFeature>SensorWidth</pFeature>
    <pFeature>SensorHeight</pFeature>
    <pFeature>PixelFormat</pFeature>
    <pFeature>AcquisitionFrameRate</pFeature>
    <pFeature>ExposureTimeUs</pFeature>
    <pFeature>TriggerSelector</pFeature>
    <pFeature>TriggerMode</pFeature>
  </Category>

  <StringReg Name="DeviceVendorName">
    <Address>0x048</Address>
    <Length>32</Length>
    <AccessMode>RO</AccessMode>
  </StringReg>

  <Integer Name="SensorWidth">
    <Value>2048</Value>
    <AccessMode>RO</AccessMode>
  </Integer>

  <Integer Name="SensorHeight">
    <Value>2048</Value>
    <AccessMode>RO</AccessMode>
  </Integer>

  <IntReg Name="Width">
    <Address>0x100</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
    <Min>1</Min>
    <pMax>SensorWidth</pMax>
  </IntReg>

  <IntReg Name="Height">
    <Address>0x104</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
    <Min>1</Min>
    <pMax>SensorHeight</pMax>
  </IntReg>

  <IntReg Name="XOffset">
    <Address>0x130</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
  </IntReg>

  <IntReg Name="YOffset">
    <Address>0x134</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
  </IntReg>

  <Enumeration Name="PixelFormat">
    <EnumEntry Name="Mono8">
      <Value>0x01080001</Value>
    </EnumEntry>
    <EnumEntry Name="Mono16">
      <Value>0x01100007</Value>
    </EnumEntry>
    <Value>0x01080001</Value>
    <AccessMode>RW</AccessMode>
  </Enumeration>

  <IntReg Name="AcquisitionFramePeriodUs">
    <Address>0x138</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
  </IntReg>

  <Converter Name="AcquisitionFrameRate">
    <pVariable>PERIOD=AcquisitionFramePeriodUs</pVariable>
    <FormulaTo>1000000/TO</FormulaTo>
    <FormulaFrom>1000000/FROM</FormulaFrom>
    <pValue>AcquisitionFramePeriodUs</pValue>
    <AccessMode>RW</AccessMode>
  </Converter>

  <IntReg Name="ExposureTimeUsReg">
    <Address>0x120</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
  </IntReg>

  <Converter Name="ExposureTimeUs">
    <FormulaTo>TO</FormulaTo>
    <FormulaFrom>FROM</FormulaFrom>
    <pValue>ExposureTimeUsReg</pValue>
    <AccessMode>RW</AccessMode>
  </Converter>

  <Enumeration Name="TriggerSelector">
    <EnumEntry Name="FrameStart">
      <Value>0</Value>
    </EnumEntry>
    <EnumEntry Name="AcquisitionStart">
      <Value>1</Value>
    </EnumEntry>
    <Value>0</Value>
  </Enumeration>

  <IntSwissKnife Name="TriggerModeOffset">
    <pVariable>SEL=TriggerSelector</pVariable>
    <Formula>SEL=1?32:0</Formula>
  </IntSwissKnife>

  <IntReg Name="TriggerMode">
    <Address>0x300</Address>
    <pAddress>TriggerModeOffset</pAddress>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
  </IntReg>
</RegisterDescription>
`
